package postgresql

// nonTerminalStatuses must match models.NonTerminalStatuses.
const nonTerminalStatuses = `('running', 'waiting_external', 'waiting_timer')`

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Flows and their node/edge graphs
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused')),
				is_active BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(255) NOT NULL DEFAULT '',
				trigger_config JSONB,
				reentry JSONB NOT NULL DEFAULT '{}',
				total_executions BIGINT NOT NULL DEFAULT 0,
				succeeded_executions BIGINT NOT NULL DEFAULT 0,
				failed_executions BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				graph_version BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_organization_trigger ON flows(organization_id, trigger_type);

			CREATE TABLE flow_nodes (
				flow_id VARCHAR(255) NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				ordinal INT NOT NULL,
				PRIMARY KEY (flow_id, id)
			);

			CREATE TABLE flow_edges (
				flow_id VARCHAR(255) NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255) NOT NULL DEFAULT '',
				label VARCHAR(255) NOT NULL DEFAULT '',
				ordinal INT NOT NULL,
				PRIMARY KEY (flow_id, id)
			);
		`,
		2: `
			-- Execution state, logs, timers and contacts
			CREATE TABLE execution_contexts (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL DEFAULT '',
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				flow_paused BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(50) NOT NULL,
				wait JSONB,
				epoch BIGINT NOT NULL DEFAULT 0,
				version BIGINT NOT NULL DEFAULT 1,
				error JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_execution_contexts_one_active
				ON execution_contexts(flow_id, contact_id)
				WHERE status IN ` + nonTerminalStatuses + `;
			CREATE INDEX idx_execution_contexts_contact_status ON execution_contexts(contact_id, status);
			CREATE INDEX idx_execution_contexts_flow_created ON execution_contexts(flow_id, contact_id, created_at);

			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				attempt INT NOT NULL DEFAULT 0,
				input JSONB,
				output JSONB,
				error TEXT NOT NULL DEFAULT '',
				logged_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution ON execution_logs(execution_id, logged_at);

			CREATE TABLE scheduled_resumes (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				epoch BIGINT NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				claimed_at TIMESTAMP WITH TIME ZONE,
				claimed_by VARCHAR(255) NOT NULL DEFAULT '',
				delivered_at TIMESTAMP WITH TIME ZONE,
				cancelled_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_scheduled_resumes_pending
				ON scheduled_resumes(due_at)
				WHERE delivered_at IS NULL AND cancelled_at IS NULL;
			CREATE INDEX idx_scheduled_resumes_execution ON scheduled_resumes(execution_id);

			CREATE TABLE contacts (
				id VARCHAR(255) PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(50) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				fields JSONB NOT NULL DEFAULT '{}',
				current_flow_id VARCHAR(255) NOT NULL DEFAULT '',
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				version BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
		3: `
			-- Lookup of running contexts nobody advanced within the lease
			CREATE INDEX idx_execution_contexts_running
				ON execution_contexts(updated_at)
				WHERE status = 'running' AND NOT flow_paused;
		`,
	}
}
