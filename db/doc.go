/*
Package db contains the data-access core of the multi-tenant data layer.

There are tools for:
- connections (lazily opened, pooled, with startup retry)
- transactions (ambient handle reuse, rollbacks on error or panic)
- observability (query timing, slow-query capture, connection info)
- health checks
*/
package db
