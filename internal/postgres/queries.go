package postgres

const (
	qRoomUpsert = `
		INSERT INTO chat_rooms (user1_id, user2_id)
		VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
		RETURNING id, user1_id, user2_id, created_at, last_message_at`

	qRoomByPair = `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM chat_rooms
		WHERE user1_id = $1 AND user2_id = $2`

	qRoomsByUser = `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM chat_rooms
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY id`

	// сортировка по последней активности: last_message_at, для пустых комнат — created_at
	qRoomsInbox = `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM chat_rooms
		WHERE (user1_id = $1 OR user2_id = $1)
		  AND (
		    $2::timestamptz IS NULL
		    OR COALESCE(last_message_at, created_at) < $2
		    OR (COALESCE(last_message_at, created_at) = $2 AND id < $3)
		  )
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
		LIMIT $4`

	qRoomTouch = `
		UPDATE chat_rooms SET last_message_at = $2
		WHERE id = $1`

	qMessageInsert = `
		INSERT INTO chat_messages (room_id, author_id, content, timestamp, story_reply_id, shared_reel_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, room_id, author_id, content, timestamp, is_read, story_reply_id, shared_reel_id, edited_at`

	qMessagesMarkRead = `
		UPDATE chat_messages SET is_read = TRUE
		WHERE room_id = $1 AND author_id <> $2 AND is_read = FALSE`

	qMessageEdit = `
		UPDATE chat_messages SET content = $4, edited_at = now()
		WHERE id = $1 AND room_id = $2 AND author_id = $3`

	qMessageDelete = `
		DELETE FROM chat_messages
		WHERE id = $1 AND room_id = $2 AND author_id = $3`

	qMessagesHistory = `
		SELECT id, room_id, author_id, content, timestamp, is_read, story_reply_id, shared_reel_id, edited_at
		FROM chat_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR timestamp < $2
		    OR (timestamp = $2 AND id < $3)
		  )
		ORDER BY timestamp DESC, id DESC
		LIMIT $4`

	qPresenceUpsert = `
		INSERT INTO profiles (user_id, is_online, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET is_online = EXCLUDED.is_online, last_seen = EXCLUDED.last_seen`

	qPresenceGet = `
		SELECT u.id, u.username, COALESCE(p.is_online, FALSE), p.last_seen
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.id = $1`

	qUserByID = `SELECT id, username FROM users WHERE id = $1`
)
