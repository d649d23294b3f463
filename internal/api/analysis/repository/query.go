package analysisRepository

const (
	queryCreateSubmission = `
		INSERT INTO submissions (
			id,
			image_filename,
			image_url,
			latitude,
			longitude,
			is_authorized,
			reason,
			state,
			detections,
			created_at
		) VALUES (
			:id,
			:image_filename,
			:image_url,
			:latitude,
			:longitude,
			:is_authorized,
			:reason,
			:state,
			:detections,
			:created_at
		)
	`

	queryGetSubmissionByID = `
		SELECT
			id,
			image_filename,
			image_url,
			latitude,
			longitude,
			is_authorized,
			reason,
			state,
			detections,
			created_at
		FROM submissions
		WHERE id = :id
	`

	queryListSubmissions = `
		SELECT
			id,
			image_filename,
			image_url,
			latitude,
			longitude,
			is_authorized,
			reason,
			state,
			detections,
			created_at
		FROM submissions
		ORDER BY created_at DESC
		LIMIT :limit
	`
)
