package sqlinline

const QUserExists = `--sql 158f6a4e-39ef-4980-b2c5-97862e7a7353
select exists(
  select 1 from users where id = $1::uuid
);
`

const QSelectEarliestUser = `--sql dcc6fada-51e8-4d13-af2e-37b2d8209cdb
select id::text, coalesce(email, ''), created_at
from users
order by created_at asc, id asc
limit 1;
`
