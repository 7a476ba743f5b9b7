package sqlinline

const QInsertPipeline = `--sql 5d6529b3-33f8-408d-84ed-a7cf0a797f78
insert into pipelines (id, status, progress, record, created_at, updated_at)
values ($1::text, $2::text, $3::int, $4::jsonb, $5::timestamptz, $6::timestamptz)
on conflict (id) do nothing;
`

const QSelectPipelineByID = `--sql 10302413-e592-40c9-8a18-d94df23007fb
select record
from pipelines
where id = $1::text
limit 1;
`

const QUpdatePipeline = `--sql 0943d847-ee03-40cf-817e-eb88a28317c9
update pipelines
set status = $2::text,
    progress = $3::int,
    record = $4::jsonb,
    updated_at = $5::timestamptz
where id = $1::text;
`

const QDeletePipeline = `--sql 6164cc1b-7f1c-46f2-aa51-eb46c35eab46
delete from pipelines
where id = $1::text;
`

const QDeletePipelinesOlderThan = `--sql a05af3bb-503c-4020-b090-320c08bcbcdd
delete from pipelines
where updated_at < $1::timestamptz
  and status = any($2::text[]);
`
