package progress

import "time"

// Apply computes the next progress state from the current record, a
// sparse update payload, and the request's wall-clock time. It is a
// pure function: persistence, validation, and ownership checks are the
// caller's responsibility.
//
// The returned tag is the activity classification assigned by this
// update, or "" when the payload was empty and the prior embedding is
// retained.
func Apply(current UserProgress, patch UpdateRequest, now time.Time) (UserProgress, ActivityTag) {
	next := current
	if patch.CurrentLevel != nil {
		next.CurrentLevel = *patch.CurrentLevel
	}
	if patch.LevelXP != nil {
		next.LevelXP = *patch.LevelXP
	}
	if patch.TotalXP != nil {
		next.TotalXP = *patch.TotalXP
	}
	next.LastActivityAt = now

	sameDay := SameDay(now, current.LastActivityAt)

	// Daily counter: on a new day the count restarts at the payload
	// value, or zero when the payload is silent.
	if patch.LessonsCompletedToday != nil {
		next.LessonsCompletedToday = *patch.LessonsCompletedToday
	} else if sameDay {
		next.LessonsCompletedToday = current.LessonsCompletedToday
	} else {
		next.LessonsCompletedToday = 0
	}

	// Streak: only re-evaluated when the calendar day changed.
	if !sameDay {
		switch {
		case next.LessonsCompletedToday > 0 && ConsecutiveDays(now, current.LastActivityAt):
			next.StreakDays = current.StreakDays + 1
		case next.LessonsCompletedToday > 0:
			// First lesson after a gap restarts the streak at one.
			next.StreakDays = 1
		default:
			next.StreakDays = 0
		}
	}

	// Activity classification, first matching rule wins.
	var tag ActivityTag
	switch {
	case patch.LessonsCompletedToday != nil && *patch.LessonsCompletedToday > current.LessonsCompletedToday:
		tag = TagLessonCompletion
	case patch.TotalXP != nil && *patch.TotalXP > current.TotalXP+20:
		tag = TagXPGain
	case !patch.IsEmpty():
		tag = TagGeneralActivity
	}
	if tag != "" {
		next.ActivityEmbedding = tag.Vector()
	}

	return next, tag
}
