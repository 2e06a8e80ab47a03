package task

import "time"

// SetInteractionState records that the assistant's output asked for human
// confirmation, along with the auto-response the InteractionDetector
// generated (if any), for use in building the next resume query. Mirrors
// original_source/worker.py:_save_interaction_state.
func (t *Task) SetInteractionState(prompt, autoResponse string) {
	if t.CheckpointData == nil {
		t.CheckpointData = make(map[string]interface{})
	}
	t.CheckpointData["needs_interaction"] = true
	t.CheckpointData["interaction_prompt"] = prompt
	t.CheckpointData["auto_response"] = autoResponse
	t.CheckpointData["interaction_timestamp"] = time.Now().UTC().Format(time.RFC3339)
}

// InteractionState reports whether the task's checkpoint carries a pending
// interaction request, and the prompt/response pair saved for it.
func (t *Task) InteractionState() (needsInteraction bool, prompt, autoResponse string) {
	if t.CheckpointData == nil {
		return false, "", ""
	}
	needs, _ := t.CheckpointData["needs_interaction"].(bool)
	if !needs {
		return false, "", ""
	}
	p, _ := t.CheckpointData["interaction_prompt"].(string)
	r, _ := t.CheckpointData["auto_response"].(string)
	return true, p, r
}

// ClearInteractionState removes a resolved interaction request from the
// checkpoint so it is not re-applied to a later resume.
func (t *Task) ClearInteractionState() {
	if t.CheckpointData == nil {
		return
	}
	delete(t.CheckpointData, "needs_interaction")
	delete(t.CheckpointData, "interaction_prompt")
	delete(t.CheckpointData, "auto_response")
	delete(t.CheckpointData, "interaction_timestamp")
}
