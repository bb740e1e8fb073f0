/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package datadog submits load run results to the Datadog v2 metrics intake.
//
// Credentials come from the environment as usual for the Datadog client
// (DD_API_KEY, DD_SITE). One payload is submitted per run.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/metrics"
)

const prefix = "geonames."

// Options controls the Datadog reporter.
type Options struct {
	// Tags are added to every series, e.g. "service:geonames-loader".
	Tags []string

	// test seams
	now       func() time.Time
	submitter metricsSubmitter
}

type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Reporter implements metrics.Reporter for Datadog.
type Reporter struct {
	api      metricsSubmitter
	baseTags []string
	now      func() time.Time
}

var _ metrics.Reporter = (*Reporter)(nil)

func New(opts Options) *Reporter {
	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	baseTags := append([]string{resolveEnvTag()}, opts.Tags...)
	return &Reporter{api: submitter, baseTags: baseTags, now: now}
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// Report submits one payload with the run counters and its duration.
func (r *Reporter) Report(ctx context.Context, run metrics.Run) error {
	payload := datadogV2.MetricPayload{Series: r.buildSeries(run, r.now().Unix())}
	_, _, err := r.api.SubmitMetrics(dd.NewDefaultContext(ctx), payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

func (r *Reporter) Close() error { return nil }

func (r *Reporter) buildSeries(run metrics.Run, nowUnix int64) []datadogV2.MetricSeries {
	tags := withTags(r.baseTags, "dataset:"+run.Dataset, "table:"+run.Table)
	if run.Country != "" {
		tags = append(tags, "country:"+run.Country)
	}

	point := func(v float64) []datadogV2.MetricPoint {
		return []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(v)}}
	}
	count := func(name string, v int) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: prefix + name,
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: point(float64(v)),
			Tags:   tags,
		}
	}

	return []datadogV2.MetricSeries{
		count("lines", run.Lines),
		count("upserted", run.Upserted),
		count("skipped", run.Skipped),
		count("malformed", run.Malformed),
		count("failed", run.Failed),
		{
			Metric: prefix + "duration_seconds",
			Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
			Points: point(run.Duration.Seconds()),
			Tags:   tags,
		},
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras)+1)
	out = append(out, base...)
	return append(out, extras...)
}
