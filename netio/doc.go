// Package netio
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable readiness-based socket layer: name resolution into immutable
// addresses, TCP streams and their listen/connect sources, pooled UDP
// datagrams and a waiting object that multiplexes readiness of many
// resources with a cross-goroutine wake-up.
//
// Every blocking call waits through api.Resource.Wait, which either polls
// the single descriptor directly or delegates to an injected
// api.WaitHandler such as *WaitingObject.
package netio
