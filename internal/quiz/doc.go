// Package quiz holds the live quiz: a single slot that the scheduler fills
// and inbound chat messages race to win.
//
// The slot lock is held across the whole evaluate-and-reply step, so under a
// burst of correct answers exactly one message wins and exactly one reply is
// sent. Messages arriving while the slot is idle are dropped without taking
// the lock.
package quiz
