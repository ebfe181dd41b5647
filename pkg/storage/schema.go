package storage

// 基准DDL使用SQLite风格书写，由各方言的CreateTableSQL转换
// 一致性契约：
//   task_instance         同一复合主键至多一行活跃记录
//   task_instance_history 复合主键+try_number唯一，只插入不更新
//   dag_run               (dag_id, run_id)唯一，logical_date锚定日期范围clear
var schemas = []string{
	`CREATE TABLE IF NOT EXISTS task_instance (
		id VARCHAR(36) PRIMARY KEY,
		dag_id VARCHAR(250) NOT NULL,
		run_id VARCHAR(250) NOT NULL,
		task_id VARCHAR(250) NOT NULL,
		map_index INTEGER NOT NULL DEFAULT -1,
		state VARCHAR(30) NOT NULL DEFAULT 'none',
		try_number INTEGER NOT NULL DEFAULT 0,
		start_date DATETIME,
		end_date DATETIME,
		duration REAL,
		pool VARCHAR(256) NOT NULL DEFAULT 'default_pool',
		queue VARCHAR(256) NOT NULL DEFAULT '',
		executor VARCHAR(256) NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		rendered_fields TEXT NOT NULL DEFAULT '',
		dag_version_id VARCHAR(36) NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		UNIQUE (dag_id, run_id, task_id, map_index)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_task_instance_state ON task_instance(state)`,
	`CREATE INDEX IF NOT EXISTS idx_task_instance_pool ON task_instance(pool)`,

	`CREATE TABLE IF NOT EXISTS task_instance_history (
		id VARCHAR(36) PRIMARY KEY,
		dag_id VARCHAR(250) NOT NULL,
		run_id VARCHAR(250) NOT NULL,
		task_id VARCHAR(250) NOT NULL,
		map_index INTEGER NOT NULL DEFAULT -1,
		try_number INTEGER NOT NULL,
		state VARCHAR(30) NOT NULL,
		start_date DATETIME,
		end_date DATETIME,
		duration REAL,
		pool VARCHAR(256) NOT NULL DEFAULT 'default_pool',
		queue VARCHAR(256) NOT NULL DEFAULT '',
		executor VARCHAR(256) NOT NULL DEFAULT '',
		rendered_fields TEXT NOT NULL DEFAULT '',
		dag_version_id VARCHAR(36) NOT NULL DEFAULT '',
		recorded_at DATETIME NOT NULL,
		UNIQUE (dag_id, run_id, task_id, map_index, try_number)
	)`,

	`CREATE TABLE IF NOT EXISTS dag_run (
		id VARCHAR(36) PRIMARY KEY,
		dag_id VARCHAR(250) NOT NULL,
		run_id VARCHAR(250) NOT NULL,
		state VARCHAR(30) NOT NULL DEFAULT 'queued',
		logical_date DATETIME NOT NULL,
		run_after DATETIME NOT NULL,
		start_date DATETIME,
		end_date DATETIME,
		conf TEXT NOT NULL DEFAULT '',
		dag_version_id VARCHAR(36) NOT NULL DEFAULT '',
		UNIQUE (dag_id, run_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_dag_run_logical_date ON dag_run(dag_id, logical_date)`,

	`CREATE TABLE IF NOT EXISTS slot_pool (
		name VARCHAR(256) PRIMARY KEY,
		slots INTEGER NOT NULL DEFAULT 0
	)`,
}
