/*
Package tasks implements Workshop's claimable task state machine.

A task moves open → claimed → done, with abandon returning a claimed task to
open for someone else to pick up. Claiming is the contended transition: when
several agents race for the same open task, exactly one wins and the rest get
a conflict they can act on. Every transition is announced as a lifecycle event
on the task's channel through the regular publish pipeline, so observers need
nothing beyond an ordinary subscription to follow the work.

# State Machine

	         claim                done
	 open ───────────▶ claimed ──────────▶ done
	   ▲                  │
	   └──────────────────┘
	         abandon

update and interrupt touch no state: update bumps updated_at and carries a
progress note in its event, interrupt is purely advisory.

# Ownership

done and abandon require the caller to be the current claimant. The engine
reads the task, checks status and claimed_by, then writes. Ownership failures
are ErrNotOwner; transitions from the wrong state are ErrNotClaimed or
ErrNotOpen; a lost claim race is ErrLostRace. The API layer maps each to its
HTTP status.
*/
package tasks
