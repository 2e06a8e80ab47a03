package task

import "sort"

// ByDispatchOrder sorts tasks by (priority ascending, created_at ascending),
// matching the ordering get_pending_ready and the Queue's candidate scan
// must honor per spec §4.1/§4.2.
func ByDispatchOrder(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
