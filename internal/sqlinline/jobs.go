package sqlinline

const jobColumns = `
    id::text,
    pipeline_id,
    asset_id,
    asset_name,
    user_id,
    config,
    priority,
    status,
    progress,
    stages,
    results,
    coalesce(error, ''),
    retry_count,
    final_asset,
    created_at,
    started_at,
    completed_at,
    last_updated_at,
    expires_at`

const QInsertGenerationJob = `--sql c45321b2-6085-47df-a977-5c75259fa7c7
insert into generation_jobs (
    id, pipeline_id, asset_id, asset_name, user_id, config, priority, status,
    progress, stages, results, retry_count, created_at, last_updated_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::jsonb, $7::text, $8::text,
        0, '{}'::jsonb, '{}'::jsonb, 0, $9::timestamptz, $9::timestamptz)
returning` + jobColumns + `;
`

const QSelectGenerationJobByID = `--sql 708afe07-9973-49d9-8f7e-2870ccaee907
select` + jobColumns + `
from generation_jobs
where id = $1::uuid
limit 1;
`

const QSelectGenerationJobByPipelineID = `--sql 011d020d-5768-4bdf-80ca-934960c1c28a
select` + jobColumns + `
from generation_jobs
where pipeline_id = $1::text
limit 1;
`

// QUpdateGenerationJob leaves a column untouched when its parameter is null.
const QUpdateGenerationJob = `--sql 101096f5-d14c-4ef3-ad20-b7dcf7c1af50
update generation_jobs
set status = coalesce($2::text, status),
    progress = coalesce($3::int, progress),
    stages = coalesce($4::jsonb, stages),
    results = coalesce($5::jsonb, results),
    error = coalesce($6::text, error),
    retry_count = coalesce($7::int, retry_count),
    final_asset = coalesce($8::jsonb, final_asset),
    started_at = coalesce($9::timestamptz, started_at),
    completed_at = coalesce($10::timestamptz, completed_at),
    expires_at = coalesce($11::timestamptz, expires_at),
    last_updated_at = $12::timestamptz
where pipeline_id = $1::text;
`

const QDeleteGenerationJob = `--sql 1d442ae2-c71e-4005-9e09-6640af656eef
delete from generation_jobs
where pipeline_id = $1::text;
`

const QDeleteExpiredGenerationJobs = `--sql 04795161-5bb0-4995-ada3-5cb6c4c2da48
delete from generation_jobs
where expires_at is not null
  and expires_at < $1::timestamptz;
`

const QDeleteOldFailedGenerationJobs = `--sql 30ad599d-a4a2-4e8c-a91d-2f16b3e046ba
delete from generation_jobs
where status = 'failed'
  and last_updated_at < $1::timestamptz;
`
