/*
Package janitor runs Workshop's retention sweep.

Once an hour the janitor deletes messages older than the configured retention
window and presence rows older than seven days. Sweeps run once at startup and
then on the ticker; a failed sweep is logged and retried next round, never
fatal. Tasks and blobs are not subject to retention.
*/
package janitor
