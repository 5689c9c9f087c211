// Package crawler defines the work, fault, and record types shared by the
// verdict crawler subsystems, together with the ports the orchestrator drives.
package crawler
