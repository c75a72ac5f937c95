package sqlinline

const QUpsertContentEntity = `--sql 01891648-1ea4-4d4c-bfbe-c6089c8cb98b
insert into content_entities(
  id,
  job_id,
  domain,
  owner_id,
  organization_id,
  title,
  summary,
  metadata,
  created_at,
  updated_at
)
values (
  $1::uuid,
  $2::uuid,
  $3::text,
  $4::uuid,
  nullif($5::text, '')::uuid,
  $6::text,
  $7::text,
  coalesce($8::jsonb, '{}'::jsonb),
  now(),
  now()
)
on conflict (job_id) do update
set owner_id = excluded.owner_id,
    organization_id = excluded.organization_id,
    title = excluded.title,
    summary = excluded.summary,
    metadata = excluded.metadata,
    updated_at = now()
returning id::text, created_at, updated_at;
`

const QDeleteArtifactsByContent = `--sql 41770b8a-b36b-4753-a3dd-7aa2d26db894
delete from artifacts
where content_id = $1::uuid;
`

const QInsertArtifactsBulk = `--sql b64781bb-0f2d-4662-8a7a-bc7e31af3109
insert into artifacts(
  id,
  content_id,
  domain,
  position,
  title,
  body,
  storage_key,
  url,
  mime,
  width,
  height,
  duration_seconds,
  bytes,
  metadata,
  created_at
)
select
  u.id::uuid,
  $1::uuid,
  $2::text,
  u.position,
  u.title,
  u.body,
  u.storage_key,
  u.url,
  u.mime,
  u.width,
  u.height,
  u.duration_seconds,
  u.bytes,
  u.metadata::jsonb,
  now()
from unnest(
  $3::text[],
  $4::int[],
  $5::text[],
  $6::text[],
  $7::text[],
  $8::text[],
  $9::text[],
  $10::int[],
  $11::int[],
  $12::float8[],
  $13::bigint[],
  $14::text[]
) as u(id, position, title, body, storage_key, url, mime, width, height, duration_seconds, bytes, metadata);
`

const QSelectContentByJob = `--sql 7c764692-8c3e-4722-b0f7-ef61ccf7bd06
select
  c.id::text,
  c.job_id::text,
  c.domain,
  c.owner_id::text,
  coalesce(c.organization_id::text, ''),
  c.title,
  c.summary,
  c.metadata,
  c.created_at,
  c.updated_at
from content_entities c
where c.job_id = $1::uuid
limit 1;
`

const QSelectArtifactsByContent = `--sql 6d077234-b681-454b-9238-9889fa5c6a5a
select
  a.id::text,
  a.content_id::text,
  a.domain,
  a.position,
  a.title,
  a.body,
  a.storage_key,
  a.url,
  a.mime,
  a.width,
  a.height,
  a.duration_seconds,
  a.bytes,
  a.metadata,
  a.created_at
from artifacts a
where a.content_id = $1::uuid
order by a.position asc;
`
