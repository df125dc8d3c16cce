package driver

const (
	SaveSessionNodeQuery = `
		MERGE (s:Session {id: $id})
		SET s.started_at = $started_at,
			s.completed_at = $completed_at,
			s.succeeded = $succeeded,
			s.failed = $failed
		RETURN s.id AS id
	`

	SaveExpertNodeQuery = `
		MERGE (n:Expert {id: $id})
		SET n.session_id = $session_id,
			n.name = $name,
			n.type = $type,
			n.category = $category,
			n.state = $state,
			n.provider = $provider,
			n.model = $model,
			n.duration_ms = $duration_ms,
			n.cost = $cost,
			n.total_tokens = $total_tokens,
			n.error = $error
		RETURN n.id AS id
	`

	SaveSessionExpertEdgeQuery = `
		MATCH (s:Session {id: $session_id})
		MATCH (n:Expert {id: $id})
		MERGE (s)-[e:RAN]->(n)
		RETURN n.id AS id
	`

	SaveExpertLinkQuery = `
		MATCH (source:Expert {id: $source_id})
		MATCH (target:Expert {id: $target_id})
		MERGE (source)-[e:FEEDS {id: $id}]->(target)
		SET e.type = $type,
			e.strength = $strength,
			e.active = $active
		RETURN e.id AS id
	`

	GetSessionGraphQuery = `
		MATCH (s:Session {id: $session_id})-[:RAN]->(n:Expert)
		RETURN n.id AS id, n.name AS name, n.type AS type, n.state AS state,
			n.provider AS provider, n.model AS model
	`
)
