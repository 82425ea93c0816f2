// Package rate implements the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Keys:
//   - {prefix}:rl:u:{username}  failed logins per username
//   - {prefix}:rl:ip:{ip}       failed logins per client IP
//
// A counter at MaxLoginAttempts blocks further attempts until the window
// expires.
package rate
