// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"

	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext reports an issue with additional context data that will be included in Sentry.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, context map[string]interface{}) {
	if err == nil {
		return
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		reportFatal(err, log, context)
	case IssueTypeError:
		reportDebounced(err, log, context, &errorDebounce)
	case IssueTypeWarning:
		reportDebounced(err, log, context, &warningDebounce)
	}
}

// ReportCoordinatorError reports an error that a coordinator's event handler
// did not handle, tagged with the coordinator and the event type.
func ReportCoordinatorError(log *zap.SugaredLogger, coordinator string, eventType string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"coordinator": coordinator,
		"event_type":  eventType,
		"operation":   "handle_event",
	})
}

// ReportComponentFailure reports a component that exhausted its activation budget.
func ReportComponentFailure(log *zap.SugaredLogger, component string, attempts int, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"component": component,
		"attempts":  attempts,
		"operation": "activate",
	})
}
