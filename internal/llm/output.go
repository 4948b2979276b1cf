// Copyright (c) 2026 John Earle
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

package llm

// ModelOutput is the structured block the model must return. Every field is
// required by the schema; unknown values are left empty by the model.
type ModelOutput struct {
	Sentiment        string   `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	RequestCategory  string   `json:"request_category"`
	IssueSummary     string   `json:"issue_summary" jsonschema:"description=One or two sentences describing the problem"`
	SenderFullName   string   `json:"sender_full_name"`
	ObjectName       string   `json:"object_name" jsonschema:"description=Organization or site name"`
	SenderPhone      string   `json:"sender_phone"`
	DeviceType       string   `json:"device_type"`
	SerialNumbers    []string `json:"serial_numbers"`
	Reply            string   `json:"reply" jsonschema:"description=Drafted reply to the customer"`
	OperatorRequired bool     `json:"operator_required"`
	OperatorReason   string   `json:"operator_reason"`
}

var classificationSchema = generateSchema[ModelOutput]()
