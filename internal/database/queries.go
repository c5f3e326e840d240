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
	// User queries
	userColumns = `id, username, wallet_address, role, balance, email, company_name, created_at`

	queryGetUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY id`

	queryInsertUser = `
		INSERT INTO users (username, wallet_address, role, balance, email, company_name, created_at)
		VALUES (?, ?, ?, '0', ?, ?, ?)`

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?`

	queryGetUserByUsername = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = ?`

	queryGetUserByWallet = `
		SELECT ` + userColumns + `
		FROM users
		WHERE wallet_address = ?`

	queryUpdateUserRole = `
		UPDATE users SET role = ? WHERE id = ?`

	queryUpdateUserWallet = `
		UPDATE users SET wallet_address = ? WHERE id = ?`

	// Client queries
	clientColumns = `id, user_id, name, email, company, address, created_at`

	queryInsertClient = `
		INSERT INTO clients (user_id, name, email, company, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetClient = `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE id = ?`

	queryListClients = `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE user_id = ?
		ORDER BY name, id`

	queryUpdateClient = `
		UPDATE clients SET name = ?, email = ?, company = ?, address = ?
		WHERE id = ?`

	queryDeleteClient = `
		DELETE FROM clients WHERE id = ?`

	// Wallet queries
	walletColumns = `id, user_id, address, network, label, created_at`

	queryInsertWallet = `
		INSERT INTO wallets (user_id, address, network, label, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryListWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?
		ORDER BY created_at, id`

	queryGetWalletByAddress = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE address = ?`

	// Invoice queries
	invoiceColumns = `id, invoice_number, creator_id, client_id, creator_wallet_address, recipient_name,
		recipient_wallet_address, amount, fiat_amount, crypto_amount, crypto_type, description, status,
		due_date, issue_date, payment_date, refund_date, escrow_date, transaction_hash,
		escrow_account_address, items, notes, template, convert_on_payment, version, created_at, updated_at`

	queryInsertInvoice = `
		INSERT INTO invoices (
			invoice_number, creator_id, client_id, creator_wallet_address, recipient_name,
			recipient_wallet_address, amount, fiat_amount, crypto_amount, crypto_type, description, status,
			due_date, issue_date, items, notes, template, convert_on_payment, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	querySetInvoiceNumber = `
		UPDATE invoices SET invoice_number = ? WHERE id = ?`

	queryGetInvoice = `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = ?`

	queryGetInvoiceByNumber = `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_number = ?`

	queryListInvoicesBase = `
		SELECT ` + invoiceColumns + `
		FROM invoices`

	queryUpdateInvoice = `
		UPDATE invoices SET
			client_id = ?, recipient_name = ?, recipient_wallet_address = ?, amount = ?, fiat_amount = ?,
			crypto_amount = ?, crypto_type = ?, description = ?, status = ?, due_date = ?,
			payment_date = ?, refund_date = ?, escrow_date = ?, transaction_hash = ?,
			escrow_account_address = ?, items = ?, notes = ?, template = ?, convert_on_payment = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Transaction queries
	transactionColumns = `id, invoice_id, sender_wallet_address, recipient_wallet_address, amount, fiat_amount,
		transaction_type, status, transaction_hash, signature, memo, timestamp`

	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE transaction_hash = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (
			invoice_id, sender_wallet_address, recipient_wallet_address, amount, fiat_amount,
			transaction_type, status, transaction_hash, signature, memo, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryListTransactionsBase = `
		SELECT ` + transactionColumns + `
		FROM transactions`

	queryUpdateTransactionStatus = `
		UPDATE transactions SET status = ? WHERE id = ? AND status = ?`

	// Payment queries
	paymentColumns = `id, user_id, invoice_id, amount, crypto_amount, crypto_type, status, transaction_id, created_at`

	queryInsertPayment = `
		INSERT INTO payments (user_id, invoice_id, amount, crypto_amount, crypto_type, status, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListPayments = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`

	queryListPaymentsByInvoice = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE invoice_id = ?
		ORDER BY created_at DESC, id DESC`

	// Contact queries
	contactColumns = `id, user_id, name, wallet_address, email, company, created_at`

	queryInsertContact = `
		INSERT INTO contacts (user_id, name, wallet_address, email, company, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryListContacts = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = ?
		ORDER BY name, id`

	queryDeleteContact = `
		DELETE FROM contacts WHERE id = ? AND user_id = ?`

	// Price queries
	priceColumns = `symbol, name, price, price_change_24h, last_updated`

	queryUpsertPrice = `
		INSERT INTO crypto_prices (symbol, name, price, price_change_24h, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE crypto_prices.name END,
			price = excluded.price,
			price_change_24h = excluded.price_change_24h,
			last_updated = excluded.last_updated`

	queryGetPrice = `
		SELECT ` + priceColumns + `
		FROM crypto_prices
		WHERE symbol = ?`

	queryListPrices = `
		SELECT ` + priceColumns + `
		FROM crypto_prices
		ORDER BY symbol`

	// Bridge transfer queries
	transferColumns = `id, user_id, from_chain, to_chain, from_address, to_address, token_address, token_symbol,
		amount, status, transaction_hash, error, mode, created_at, updated_at`

	queryUpsertTransfer = `
		INSERT INTO bridge_transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			transaction_hash = excluded.transaction_hash,
			error = excluded.error,
			updated_at = excluded.updated_at`

	queryGetTransfer = `
		SELECT ` + transferColumns + `
		FROM bridge_transfers
		WHERE id = ?`

	queryListTransfers = `
		SELECT ` + transferColumns + `
		FROM bridge_transfers
		ORDER BY created_at DESC`

	queryListTransfersByUser = `
		SELECT ` + transferColumns + `
		FROM bridge_transfers
		WHERE user_id = ?
		ORDER BY created_at DESC`
)
