package sqlinline

const QClaimEventKey = `--sql e6ee9b5b-d07f-4514-afe8-adf480de26cb
insert into webhook_event_keys(key, state, expires_at, created_at, updated_at)
values ($1::text, 'inflight', now() + make_interval(secs => $2::double precision), now(), now())
on conflict (key) do update
set state = 'inflight',
    expires_at = excluded.expires_at,
    updated_at = now()
where webhook_event_keys.expires_at < now()
returning key;
`

const QSelectEventKeyState = `--sql a9e9e61c-52f8-472f-bda4-f8ea3fa158bb
select state
from webhook_event_keys
where key = $1::text and expires_at >= now();
`

const QCompleteEventKey = `--sql dc7ef5c4-56fd-4552-93a5-9f69a42011f4
update webhook_event_keys
set state = 'done',
    expires_at = now() + make_interval(secs => $2::double precision),
    updated_at = now()
where key = $1::text;
`

const QDeleteEventKey = `--sql 62564518-b4cd-437c-9afb-2f0edf1e2441
delete from webhook_event_keys
where key = $1::text;
`

const QSweepEventKeys = `--sql fe91dc6c-a4e0-436e-89a9-3cd797de792c
delete from webhook_event_keys
where expires_at < now();
`
