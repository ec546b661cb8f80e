// Package ir provides the data model shared by every formflow package.
//
// This package contains type definitions and value helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Templates are referenced by id from instances, never embedded
//   - Steps, form history and activity entries are append-only records
//   - Form values are a sealed union (text, number, bool, select)
//   - All JSON tags use snake_case
package ir
