/*
Package migrations drives schema migrations for the primary database and for
every tenant database, using the same ordered migration set for both so a
tenant store can never drift from the primary schema shape.
*/
package migrations
