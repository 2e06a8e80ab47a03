// Package recovery implements the health-check and self-remediation loop
// that finds and fixes stuck workers, orphaned tasks, disk/memory pressure
// and network outages without operator intervention. Grounded in
// original_source/recovery_manager.py's SystemHealthMonitor,
// RecoveryExecutor and AutoRecoveryManager.
package recovery

import "fmt"

// ActionType identifies a kind of recovery remediation, mirroring
// RecoveryAction.action_type's string values.
type ActionType string

const (
	ActionCleanupDiskSpace       ActionType = "cleanup_disk_space"
	ActionManageMemoryPressure   ActionType = "manage_memory_pressure"
	ActionRestartStuckWorker     ActionType = "restart_stuck_worker"
	ActionRecoverOrphanedTask    ActionType = "recover_orphaned_task"
	ActionHandleNetworkFailure   ActionType = "handle_network_failure"
	ActionInvestigateSystemError ActionType = "investigate_system_error"
)

// Action is one candidate remediation surfaced by a health check, run in
// ascending Priority order (1 = highest).
type Action struct {
	Type        ActionType
	Priority    int
	Description string
	TaskID      string
	WorkerID    string
	Metadata    map[string]interface{}
}

// key identifies an in-flight Action for the Executor's dedup set, so a slow
// remediation isn't launched twice while it's still running.
func (a Action) key() string {
	return fmt.Sprintf("%s:%s:%s", a.Type, a.TaskID, a.WorkerID)
}
