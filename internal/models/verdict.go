/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// CheckName identifies one entry of the fixed validation checklist.
type CheckName string

const (
	CheckImageQuality      CheckName = "imageQuality"
	CheckMicr              CheckName = "micrValidation"
	CheckAmountConsistency CheckName = "amountConsistency"
	CheckDate              CheckName = "dateValidation"
	CheckEndorsement       CheckName = "endorsementCheck"
	CheckDuplicate         CheckName = "duplicateCheck"
	CheckFraud             CheckName = "fraudCheck"
	CheckService           CheckName = "validationService"
)

// Issue is a single warning or error. Every blocking issue carries a suggestion
// the user can act on.
type Issue struct {
	Check       CheckName `json:"check"`
	Message     string    `json:"message"`
	Suggestion  string    `json:"suggestion"`
	Overridable bool      `json:"overridable"`
}

// ValidationChecks is the fixed checklist. A true value means the check passed.
type ValidationChecks struct {
	ImageQuality      bool `json:"imageQuality"`
	MicrValidation    bool `json:"micrValidation"`
	AmountConsistency bool `json:"amountConsistency"`
	DateValidation    bool `json:"dateValidation"`
	EndorsementCheck  bool `json:"endorsementCheck"`
	DuplicateCheck    bool `json:"duplicateCheck"`
	FraudCheck        bool `json:"fraudCheck"`
}

// ValidationVerdict aggregates every check run against one extraction.
// IsValid is always equal to len(Errors) == 0.
type ValidationVerdict struct {
	IsValid   bool             `json:"isValid"`
	Warnings  []Issue          `json:"warnings"`
	Errors    []Issue          `json:"errors"`
	RiskScore float64          `json:"riskScore"`
	Checks    ValidationChecks `json:"checks"`
}

// CanOverride reports whether the user may continue despite the errors. Only
// verdicts whose every error is overridable qualify.
func (v ValidationVerdict) CanOverride() bool {
	if v.IsValid {
		return false
	}
	for _, e := range v.Errors {
		if !e.Overridable {
			return false
		}
	}
	return true
}

// Suggestions collects the actionable next steps of every issue, errors first.
func (v ValidationVerdict) Suggestions() []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]Issue{v.Errors, v.Warnings} {
		for _, i := range list {
			if i.Suggestion == "" || seen[i.Suggestion] {
				continue
			}
			seen[i.Suggestion] = true
			out = append(out, i.Suggestion)
		}
	}
	return out
}
