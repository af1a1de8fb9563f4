/*
Package resilience provides the circuit breaker guarding trusted-side fetches.

# Overview

Script hosts come and go. A breaker per host (see Group) stops the host from
hammering an unreachable mirror while install checks and GM_xmlhttpRequest
calls to other hosts keep flowing.

# Usage

	group := resilience.NewGroup("http", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 10
		},
	})

	_, err := group.Get(u.Host).Execute(func() (interface{}, error) {
		return req.Get(u.String())
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
