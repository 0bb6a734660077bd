// Package models defines the core domain records for the canteen debt engine.
//
// # Entity Records
//
// Read-only snapshots of rows owned by the remote store:
//   - Guardian: a billable responsible party (table "responsaveis")
//   - Dependent: a student whose purchases a guardian may be billed for ("alunos")
//   - Relation: a guardian-dependent edge tagged with a level ("relacao")
//   - Purchase: a priced transaction of a dependent, paid or unpaid ("compras")
//   - Product and LineItem: the catalog and the per-purchase quantities
//     ("produtos", "produtos_comprados")
//
// # Derived Records
//
// DebtRecord, DependentDebt and PurchaseDebt form the per-guardian debt tree
// produced by the calculator. They are rebuilt from scratch on every run and
// never persisted.
//
// # Design Principles
//
//  1. Money is decimal.Decimal from ingestion onward, never float64
//  2. Optional columns are pointers; a missing value is nil, not ""
//  3. Relationships are ID strings, not pointers between records
//  4. Every record validates itself after decoding (see Validate methods)
package models
