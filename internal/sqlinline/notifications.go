package sqlinline

const QInsertNotification = `--sql 4a312296-6019-44de-a757-14461b94761d
insert into notifications(
  id,
  user_id,
  job_id,
  type,
  title,
  message,
  metadata,
  read,
  dedupe_key,
  dispatch_attempts,
  created_at
)
values (
  $1::uuid,
  $2::uuid,
  $3::uuid,
  $4::text,
  $5::text,
  $6::text,
  coalesce($7::jsonb, '{}'::jsonb),
  false,
  $8::text,
  0,
  now()
)
on conflict (dedupe_key) do nothing
returning id::text;
`

const QClaimPendingNotifications = `--sql 131f5cf4-8e8e-44ab-8457-6e2f82a4adcf
with next_batch as (
  select id
  from notifications
  where dispatched_at is null
    and (claimed_until is null or claimed_until < now())
  order by created_at asc
  for update skip locked
  limit $1::int
)
update notifications n
set claimed_until = now() + make_interval(secs => $2::double precision),
    dispatch_attempts = n.dispatch_attempts + 1
from next_batch
where n.id = next_batch.id
returning
  n.id::text,
  n.user_id::text,
  n.job_id::text,
  n.type,
  n.title,
  n.message,
  n.metadata,
  n.read,
  n.dedupe_key,
  n.dispatched_at,
  n.dispatch_attempts,
  n.created_at;
`

const QMarkNotificationDispatched = `--sql 954a9a7f-81aa-43b2-bce7-2c61694a6b83
update notifications
set dispatched_at = $2::timestamptz,
    claimed_until = null
where id = $1::uuid;
`

const QReleaseNotification = `--sql c1f91e93-407d-47c3-a023-1b8d9ca5324b
update notifications
set claimed_until = null
where id = $1::uuid and dispatched_at is null;
`

const QListPendingNotifications = `--sql beeacf38-a4dc-47df-8f65-1a66ad9c0879
select
  n.id::text,
  n.user_id::text,
  n.job_id::text,
  n.type,
  n.title,
  n.message,
  n.metadata,
  n.read,
  n.dedupe_key,
  n.dispatched_at,
  n.dispatch_attempts,
  n.created_at
from notifications n
where n.dispatched_at is null
order by n.created_at asc
limit $1::int;
`
