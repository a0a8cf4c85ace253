// Package model provides typed accessors over the storage tables.
//
// An accessor loads its record once at construction and buffers the fields;
// mutations stay local until Save() flushes them back. Two accessors for the
// same id are independent and last-writer-wins at the store level.
package model
