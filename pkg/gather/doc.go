// Package gather provides collective communication for groups of workers
// training replicas of one model. AllGather concatenates every worker's
// buffer in rank order so each replica can score its questions against
// the whole group's passage representations. Only the caller's own
// buffer stays tracked for gradient computation; remote buffers arrive
// detached.
package gather
