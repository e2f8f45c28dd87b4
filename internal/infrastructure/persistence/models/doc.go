// Package models contains the GORM persistence models of the ledger tables.
// Models are separate from domain aggregates so the domain layer stays free
// of ORM tags. Each model has a ToDomain method and a From* constructor;
// repositories only ever hand domain types to callers.
//
// Unique index names are part of the contract with the repositories: they
// are matched against the constraint reported by a failed write to decide
// which domain error to return.
package models
