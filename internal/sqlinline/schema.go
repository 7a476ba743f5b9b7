package sqlinline

// SchemaStatements are applied in order by repo.Migrate. Each is idempotent.
var SchemaStatements = []string{
	QCreatePipelinesTable,
	QCreatePipelinesIndex,
	QCreateJobsTable,
	QCreateJobsIndex,
	QCreateIntegrationTokensTable,
}

const QCreatePipelinesTable = `--sql 1d68850c-7f4a-4d21-aa62-c833a18be299
create table if not exists pipelines (
    id text primary key,
    status text not null,
    progress int not null default 0,
    record jsonb not null,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreatePipelinesIndex = `--sql 9a739896-a267-47e1-b0a4-b8c8e88d1b1a
create index if not exists pipelines_status_updated_idx on pipelines (status, updated_at);
`

const QCreateJobsTable = `--sql 72437d41-4bc6-4bb9-9024-4fbb3f242f9f
create table if not exists generation_jobs (
    id uuid primary key,
    pipeline_id text not null unique,
    asset_id text not null,
    asset_name text not null default '',
    user_id text not null check (user_id <> ''),
    config jsonb not null,
    priority text not null default 'normal',
    status text not null,
    progress int not null default 0,
    stages jsonb not null default '{}'::jsonb,
    results jsonb not null default '{}'::jsonb,
    error text,
    retry_count int not null default 0,
    final_asset jsonb,
    created_at timestamptz not null default now(),
    started_at timestamptz,
    completed_at timestamptz,
    last_updated_at timestamptz not null default now(),
    expires_at timestamptz
);
`

const QCreateJobsIndex = `--sql 00a82d92-bb0c-40a4-81f2-761da9c6488c
create index if not exists generation_jobs_status_updated_idx on generation_jobs (status, last_updated_at);
`
