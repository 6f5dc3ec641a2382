package postgresql

// migrations returns the schema migrations by version. Node and edge lists
// are stored as JSONB on the process row: the engine always loads a process
// whole, so relational node tables would only add join cost.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS processes (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				target_type VARCHAR(255) NOT NULL,
				version VARCHAR(50) NOT NULL DEFAULT '1.0',
				active BOOLEAN NOT NULL DEFAULT FALSE,
				trigger_policy JSONB,
				definition JSONB,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_processes_target_type
				ON processes (target_type) WHERE active;

			CREATE TABLE IF NOT EXISTS instances (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(512) NOT NULL DEFAULT '',
				process_id VARCHAR(255) NOT NULL,
				target_type VARCHAR(255) NOT NULL,
				target_id VARCHAR(255) NOT NULL,
				state VARCHAR(50) NOT NULL DEFAULT 'draft',
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				history JSONB NOT NULL DEFAULT '[]',
				end_outcome VARCHAR(50) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE,
				ended_at TIMESTAMP WITH TIME ZONE,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				error_log JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_instances_process_id
				ON instances (process_id);

			CREATE INDEX IF NOT EXISTS idx_instances_target
				ON instances (target_type, target_id);

			CREATE INDEX IF NOT EXISTS idx_instances_state
				ON instances (state);
		`,
	}
}
