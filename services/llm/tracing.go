// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("spendo.llm")

// startWorkflowSpan creates a span for one workflow run.
func startWorkflowSpan(ctx context.Context, in WorkflowInput) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llm.Workflow.Run",
		trace.WithAttributes(
			attribute.Int("llm.history_turns", len(in.History)),
			attribute.Bool("llm.has_balances", in.Balances != nil),
		),
	)
}

// setWorkflowSpanResult records the classification and outcome.
func setWorkflowSpanResult(span trace.Span, cls Classification, err error) {
	span.SetAttributes(
		attribute.Bool("llm.finance_question", cls.FinanceQuestion),
		attribute.Bool("llm.balance_query", cls.MonetaryBalanceQuery),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
