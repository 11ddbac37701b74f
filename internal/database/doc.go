// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package database provides GORM-backed database connection pool management,
with health checks, stats collection, and transaction retry.

# Overview

PoolManager wraps GORM and database/sql connection pool configuration,
managing connection lifetime, idle reclamation, and max connection limits
in one place. A background health check pings on an interval and logs
diagnostics through zap when it fails.

# Core types

  - PoolManager: the pool manager, holding the GORM DB instance and its
    underlying sql.DB, with DB(), Ping(), Stats(), Close() lifecycle methods.
  - PoolConfig: pool configuration — max idle conns, max open conns,
    connection max lifetime, idle timeout, health check interval.
  - PoolStats: a friendlier view of pool statistics.
  - TransactionFunc: the transaction callback type.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Health checks: a background PingContext loop reporting connection
    and idle counts.
  - Transaction management: WithTransaction runs a single transaction,
    WithTransactionRetry adds exponential backoff retry for deadlocks and
    serialization failures.
  - Stats collection: GetStats returns structured pool metrics.
*/
package database
