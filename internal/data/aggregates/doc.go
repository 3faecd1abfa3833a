// Package aggregates implements the domain aggregate contracts over GORM.
//
// Aggregates compose table repos from internal/data/repos and own the
// transaction boundary for every delivery write.
package aggregates
