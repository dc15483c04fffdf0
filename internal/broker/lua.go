package broker

import "github.com/redis/go-redis/v9"

// Every multi-key mutation the broker needs ("move id between sets, write
// task record" done together) is a Lua script: Redis executes a script as
// one atomic unit, which is the simplest way to get that guarantee out of
// sorted sets, sets and strings, with no engine-native multi-key CAS
// beyond WATCH/MULTI.

// enqueueScript writes the task record and indexes it into either the
// pending or delayed set, failing closed on a duplicate id (Conflict).
// KEYS: 1=task key, 2=target key (pending or delayed), 3=queues set
// ARGV: 1=id, 2=task json, 3=score, 4=queue name
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// claimScript records a freshly-dequeued task as processing. Called
// immediately after the blocking pop removes the id from pending; there is
// no further guard needed because BZPOPMIN already gave this caller
// exclusive ownership of that pending entry.
// KEYS: 1=processing set, 2=processing ts hash, 3=task key
// ARGV: 1=id, 2=dequeue unix-ms, 3=task json
var claimScript = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('SET', KEYS[3], ARGV[3])
return 1
`)

// completeScript moves a task out of processing into completed. Guarded on
// membership so a task already recovered by a sweep (no longer processing)
// cannot be double-completed.
// KEYS: 1=processing set, 2=processing ts hash, 3=completed set, 4=task key
// ARGV: 1=id, 2=task json, 3=ttl seconds (0 = no expiry)
var completeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[4], ARGV[2], 'EX', ttl)
else
	redis.call('SET', KEYS[4], ARGV[2])
end
return 1
`)

// requeueScript moves a task out of processing back into the delayed set
// (retry-with-backoff path). Guarded on an exact ts match, not just
// membership, so a sweep operating on a stale snapshot cannot recover a
// task that has since completed and been re-dequeued under a new ts
// (the ABA case sweep_stale's idempotence requirement guards against).
// KEYS: 1=processing set, 2=processing ts hash, 3=delayed set, 4=task key
// ARGV: 1=id, 2=expected ts, 3=visible-at unix-ms, 4=task json
var requeueScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur == false or cur ~= ARGV[2] then
	return 0
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('SET', KEYS[4], ARGV[4])
return 1
`)

// deadLetterScript moves a task out of processing into the failed set and
// the DLQ ordered set, guarded the same way as requeueScript.
// KEYS: 1=processing set, 2=processing ts hash, 3=failed set, 4=dlq zset, 5=task key
// ARGV: 1=id, 2=expected ts, 3=park unix-ms, 4=task json
var deadLetterScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur == false or cur ~= ARGV[2] then
	return 0
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
redis.call('SET', KEYS[5], ARGV[4])
return 1
`)

// cancelPendingScript atomically removes a task from pending and parks it
// as a cancelled failure: the remove-from-pending + mark-failed move for
// cancelling a task that hasn't started yet.
// KEYS: 1=pending zset, 2=failed set, 3=dlq zset, 4=task key
// ARGV: 1=id, 2=park unix-ms, 3=task json
var cancelPendingScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
redis.call('SET', KEYS[4], ARGV[3])
return 1
`)

// requeueTerminalScript implements both requeue_dead_letter and
// retry_task — the same move under two public names: pull a task out of
// whichever terminal set currently holds it and place it back in
// pending. The SREM/ZREM calls against sets the task isn't in are
// harmless no-ops, so this works uniformly for a failed/dead-lettered or a
// completed task.
// KEYS: 1=failed set, 2=dlq zset, 3=completed set, 4=pending zset, 5=task key
// ARGV: 1=id, 2=score, 3=task json
var requeueTerminalScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
redis.call('SET', KEYS[5], ARGV[3])
return 1
`)

// promoteScript moves a single due id from the delayed set into pending,
// used by the visibility promoter (delayed.go). Guarded on membership so
// two promoter instances racing on the same id only apply it once.
// KEYS: 1=delayed zset, 2=pending zset
// ARGV: 1=id, 2=pending score
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)
