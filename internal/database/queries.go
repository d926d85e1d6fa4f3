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

package database

const (
	// Account queries
	queryGetAccounts = `
		SELECT id, user_id, name, email, check_deposit_enabled, created_at, updated_at
		FROM accounts
		ORDER BY created_at`

	queryInsertAccount = `
		INSERT OR IGNORE INTO accounts (id, user_id, name, email) VALUES (?, ?, ?, ?)`

	queryGetAccountById = `
		SELECT id, user_id, name, email, check_deposit_enabled, created_at, updated_at
		FROM accounts
		WHERE id = ?`

	// Deposit queries
	depositColumns = `
		id, session_id, user_id, account_id, status, amount, submitted_at,
		estimated_availability, actual_availability, confirmation_number,
		rejection_reason, hold_reason, hold_type, immediately_available,
		risk_score, original_deposit_id, version, updated_at`

	queryInsertDeposit = `
		INSERT INTO deposits (
			id, session_id, user_id, account_id, status, amount, submitted_at,
			estimated_availability, confirmation_number, immediately_available,
			risk_score, original_deposit_id, version, updated_at,
			memo, device_id, override, routing_number, check_account_number,
			check_number, duplicate_key, front_hash, back_hash, extracted_json, verdict_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDepositById = `SELECT` + depositColumns + `
		FROM deposits
		WHERE id = ?`

	queryGetDepositBySession = `SELECT` + depositColumns + `
		FROM deposits
		WHERE session_id = ?`

	queryGetIntakeEvidence = `
		SELECT memo, device_id, override, extracted_json, verdict_json
		FROM deposits
		WHERE id = ?`

	queryListDepositsByStatus = `SELECT` + depositColumns + `
		FROM deposits
		WHERE status = ?
		ORDER BY submitted_at
		LIMIT ?`

	queryListDepositsByAccount = `SELECT` + depositColumns + `
		FROM deposits
		WHERE account_id = ?
		ORDER BY submitted_at DESC
		LIMIT ? OFFSET ?`

	queryUpdateDeposit = `
		UPDATE deposits
		SET status = ?, estimated_availability = ?, actual_availability = ?,
		    rejection_reason = ?, hold_reason = ?, hold_type = ?, immediately_available = ?,
		    risk_score = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryGetMostRecentDepositTime = `
		SELECT MAX(submitted_at) FROM deposits`

	// Processing step queries
	queryDeleteSteps = `
		DELETE FROM processing_steps WHERE deposit_id = ?`

	queryInsertStep = `
		INSERT INTO processing_steps (deposit_id, position, name, status, timestamp, estimated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetSteps = `
		SELECT name, status, timestamp, estimated_at
		FROM processing_steps
		WHERE deposit_id = ?
		ORDER BY position`

	// Duplicate and limit queries
	queryFindDuplicateKey = `
		SELECT id FROM deposits
		WHERE duplicate_key = ? AND submitted_at >= ?
		  AND status NOT IN ('REJECTED', 'CANCELLED', 'FAILED')
		ORDER BY submitted_at DESC
		LIMIT 1`

	queryFindImageHash = `
		SELECT id FROM deposits
		WHERE (front_hash = ? OR back_hash = ?) AND submitted_at >= ?
		  AND status NOT IN ('REJECTED', 'CANCELLED', 'FAILED')
		ORDER BY submitted_at DESC
		LIMIT 1`

	queryDuplicateKeysSince = `
		SELECT routing_number, check_account_number, check_number, amount
		FROM deposits
		WHERE duplicate_key != '' AND submitted_at >= ?`

	querySumSubmittedSince = `
		SELECT COALESCE(SUM(CAST(amount AS REAL)), 0)
		FROM deposits
		WHERE account_id = ? AND submitted_at >= ?
		  AND status NOT IN ('REJECTED', 'CANCELLED', 'FAILED')`

	queryCountSuccessfulDeposits = `
		SELECT COUNT(*), COALESCE(SUM(CAST(amount AS REAL)), 0)
		FROM deposits
		WHERE account_id = ? AND status = 'DEPOSITED'`

	// Balance queries
	queryGetBalance = `
		SELECT balance, held
		FROM account_balances
		WHERE account_id = ? AND currency = ?`

	queryGetAllAccountBalances = `
		SELECT id, account_id, currency, balance, held, last_transaction_id, version, updated_at
		FROM account_balances
		WHERE account_id = ? AND (balance != 0 OR held != 0)
		ORDER BY currency`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(held_delta), 0)
		FROM transactions
		WHERE account_id = ? AND currency = ? AND status = 'confirmed'`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE external_transaction_id = ? LIMIT 1`

	queryGetAccountBalance = `
		SELECT id, balance, held, version
		FROM account_balances
		WHERE account_id = ? AND currency = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, account_id, currency, balance, held, version)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, account_id, currency, transaction_type, amount, balance_before, balance_after,
			held_delta, deposit_id, external_transaction_id, reference, status, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, account_id, currency, transaction_type, amount, balance_before, balance_after,
		          held_delta, deposit_id, external_transaction_id, reference, status, created_at, processed_at`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, held = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE account_id = ? AND currency = ? AND version = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, account_id, currency, transaction_type, amount, balance_before, balance_after,
		       held_delta, deposit_id, external_transaction_id, reference, status, created_at, processed_at
		FROM transactions
		WHERE account_id = ? AND currency = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
)
