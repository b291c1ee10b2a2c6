// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain stays free of ORM tags;
// each model converts to and from its domain type with ToDomain / XModelFromDomain.
//
// Structure:
//   - base.go: shared id and timestamp columns
//   - settlement.go, payout.go: settlement aggregate and payout attempts
//   - ledger.go: the transaction feed read by the aggregator
//   - fee.go: fee schedules and payout destinations
//   - dunning.go: invoices, dunning history and access overrides
package models
