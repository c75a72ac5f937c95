package sqlinline

const QSelectJobByExternalID = `--sql 30ef353a-c875-4d83-b5dc-d14449efd91d
select
  j.id::text,
  j.domain,
  coalesce(j.external_job_id, ''),
  j.status,
  j.progress,
  j.owner_id::text,
  coalesce(j.organization_id::text, ''),
  j.input_data,
  j.result,
  coalesce(j.error, ''),
  j.correlation,
  j.last_event_at,
  j.started_at,
  j.completed_at,
  j.created_at,
  j.updated_at
from jobs j
where j.domain = $1::text
  and (
    j.external_job_id = $2::text
    or j.id in (
      select a.job_id
      from job_external_aliases a
      where a.domain = $1::text and a.external_job_id = $2::text
    )
  )
order by (j.external_job_id = $2::text) desc nulls last
limit 1;
`

const QSelectJobByID = `--sql c5bb6bd2-d073-4df7-bf47-ca3d9cb66c2f
select
  j.id::text,
  j.domain,
  coalesce(j.external_job_id, ''),
  j.status,
  j.progress,
  j.owner_id::text,
  coalesce(j.organization_id::text, ''),
  j.input_data,
  j.result,
  coalesce(j.error, ''),
  j.correlation,
  j.last_event_at,
  j.started_at,
  j.completed_at,
  j.created_at,
  j.updated_at
from jobs j
where j.id = $1::uuid
limit 1;
`

const QLockJobByID = `--sql 914757c4-8d2f-4629-ba81-2107a7abc887
select
  j.id::text,
  j.domain,
  coalesce(j.external_job_id, ''),
  j.status,
  j.progress,
  j.owner_id::text,
  coalesce(j.organization_id::text, ''),
  j.input_data,
  j.result,
  coalesce(j.error, ''),
  j.correlation,
  j.last_event_at,
  j.started_at,
  j.completed_at,
  j.created_at,
  j.updated_at
from jobs j
where j.id = $1::uuid
for update;
`

const QSelectRecentOpenJob = `--sql 8239d6f7-adaa-4088-9d49-d99a7f879b90
select
  j.id::text,
  j.domain,
  coalesce(j.external_job_id, ''),
  j.status,
  j.progress,
  j.owner_id::text,
  coalesce(j.organization_id::text, ''),
  j.input_data,
  j.result,
  coalesce(j.error, ''),
  j.correlation,
  j.last_event_at,
  j.started_at,
  j.completed_at,
  j.created_at,
  j.updated_at
from jobs j
where j.domain = $1::text
  and j.status in ('PENDING', 'RUNNING')
  and j.created_at >= $2::timestamptz
  and (j.external_job_id is null or j.external_job_id = $3::text)
  and not exists (
    select 1
    from job_external_aliases a
    where a.job_id = j.id and a.external_job_id <> $3::text
  )
order by j.created_at desc
limit 1;
`

const QAdoptJob = `--sql d3c9be30-89e7-4ee3-933b-54f09171a95b
with claimed as (
  update jobs j
  set external_job_id = coalesce(j.external_job_id, $3::text),
      correlation = 'adopted',
      updated_at = now()
  where j.id = $1::uuid
    and j.domain = $2::text
    and j.status in ('PENDING', 'RUNNING')
    and (j.external_job_id is null or j.external_job_id = $3::text)
    and not exists (
      select 1
      from job_external_aliases a
      where a.job_id = j.id and a.external_job_id <> $3::text
    )
  returning j.id
), alias as (
  insert into job_external_aliases(domain, external_job_id, job_id, created_at)
  select $2::text, $3::text, c.id, now()
  from claimed c
  on conflict (domain, external_job_id) do nothing
)
select id::text from claimed;
`

const QInsertJobIfAbsent = `--sql c2e1767c-a93c-4a50-872d-7c55c1509b0a
insert into jobs(
  id,
  domain,
  external_job_id,
  status,
  progress,
  owner_id,
  organization_id,
  input_data,
  result,
  error,
  correlation,
  last_event_at,
  started_at,
  completed_at,
  created_at,
  updated_at
)
values (
  $1::uuid,
  $2::text,
  nullif($3::text, ''),
  $4::text,
  $5::int,
  $6::uuid,
  nullif($7::text, '')::uuid,
  coalesce($8::jsonb, '{}'::jsonb),
  $9::jsonb,
  nullif($10::text, ''),
  $11::text,
  $12::timestamptz,
  $13::timestamptz,
  $14::timestamptz,
  now(),
  now()
)
on conflict (domain, external_job_id) do nothing
returning id::text;
`

const QUpdateJobState = `--sql 170e7a1b-a0cd-47f3-bd0d-a0f65e2976ba
update jobs
set status = $2::text,
    progress = $3::int,
    result = $4::jsonb,
    error = nullif($5::text, ''),
    last_event_at = $6::timestamptz,
    started_at = $7::timestamptz,
    completed_at = $8::timestamptz,
    updated_at = now()
where id = $1::uuid;
`
