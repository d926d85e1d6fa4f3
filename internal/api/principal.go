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

package api

import (
	"slices"
)

// Principal is the authenticated caller of the deposit backend.
type Principal struct {
	UserId   string
	Accounts []string
	Reviewer bool
}

// CanAccess reports whether the principal is entitled to accountId.
func (p Principal) CanAccess(accountId string) bool {
	return slices.Contains(p.Accounts, accountId)
}
