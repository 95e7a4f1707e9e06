// Package core provides the CRM business logic independent of any transport.
//
// It can be used by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Modules: each business record type is registered once with its form
//     key, storage table, log module and export type. See [Register].
//   - Services: [ContractService], [PaymentPlanService], [QuotationService]
//     and [PriceService] add, update, read, list, delete and export records.
//     All of them read the caller's [Identity] from the context.
//   - Dynamic fields: each record carries form-configured fields stored by
//     the resourcefield package and validated against the organization's
//     form, served through the cached [FormProvider].
//   - Audit: every change writes an operation log entry with per-column
//     diffs built by [OperationLogger] in the same transaction.
//   - Snapshots: contracts and quotations keep the form they were last
//     saved with so old records render as they were entered.
//
// # Errors
//
// Rule violations are returned as [BusinessError] carrying an i18n key.
// [MapError] turns any error into a localized [UserMessage] with an action
// hint and a stable code.
//
// # Money
//
// Amounts are decimals rounded half-up to two places; sums are rounded once
// after adding. See [SumAmounts].
//
// # Concurrency
//
// Services are safe for concurrent use. Writes run in one database
// transaction each; list enrichment runs its lookups concurrently.
package core
