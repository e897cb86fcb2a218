package mysql

const propertyColumns = `id, external_id, title, description, booking_url, bedrooms, bathrooms,
  featured_image, status, retired_at, created_at, updated_at`

const findByExternalIDSQL = `
SELECT ` + propertyColumns + `
FROM properties
WHERE external_id = ?
`

const listActiveSQL = `
SELECT ` + propertyColumns + `
FROM properties
WHERE status = 'active'
ORDER BY id
`

const insertPropertySQL = `
INSERT INTO properties
  (external_id, title, description, booking_url, bedrooms, bathrooms, featured_image, status)
VALUES
  (?, ?, ?, ?, ?, ?, ?, 'active')
`

// featured_image is written on insert only.
const updatePropertySQL = `
UPDATE properties SET
  title       = ?,
  description = ?,
  booking_url = ?,
  bedrooms    = ?,
  bathrooms   = ?
WHERE id = ?
`

const reactivatePropertySQL = `
UPDATE properties SET
  title       = ?,
  description = ?,
  booking_url = ?,
  bedrooms    = ?,
  bathrooms   = ?,
  status      = 'active',
  retired_at  = NULL
WHERE id = ?
`

const retirePropertySQL = `
UPDATE properties SET
  status     = 'retired',
  retired_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'active'
`

const insertRunSQL = `
INSERT INTO sync_runs
  (run_id, started_at, finished_at, dry_run, aborted, abort_reason,
   fetched, created, updated, unchanged, reactivated, retired, skipped, failed, problems)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
