// Package app composes the wager engine with its stores, ledger, chain head
// source, randomness providers and background services.
//
// The dependency flow is:
//
//	cmd/wagerd
//	      │
//	      ▼
//	internal/app/runtime (HTTP server, auth)
//	      │
//	      ▼
//	internal/app (composition)
//	      │
//	      ├──► internal/app/services/wager (entry lifecycle)
//	      │           │
//	      │           ├──► internal/app/policy, internal/app/settlement
//	      │           └──► internal/app/randomness/{local,vrf,oracle}
//	      │
//	      ├──► internal/app/storage/{memory,postgres,bolt}
//	      ├──► internal/ledger, internal/chain
//	      └──► internal/engine/{events,metrics,bus}
//
// New builds everything from a config.Config. Start and Stop drive the
// registered services through system.Manager.
package app
