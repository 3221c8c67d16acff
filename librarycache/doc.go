// Package librarycache wires the library aggregates into the generic cache-aside
// repository.
//
// For each aggregate it provides the record mapper, the cache schema (key prefix,
// ttl and indexes), the source contract the relational store implements and a
// typed repository:
//
//	| Aggregate | TTL | Unique keys                    | Lookup keys                          |
//	|-----------|-----|--------------------------------|--------------------------------------|
//	| book      | 2h  | isbn                           | title, genre, authorname, authorid   |
//	| author    | 6h  | author number                  | name, nameprefix                     |
//	| genre     | 24h | name                           | all                                  |
//	| reader    | 30m | reader number, username, userid| phone                                |
//
// Reporting and multi-field search methods are routed straight to the source
// and never read or write the cache.
package librarycache
