package models

// ProjectCounts are the inputs of the project progress formula.
type ProjectCounts struct {
	Milestones          int
	CompletedMilestones int
	Tasks               int
	CompletedTasks      int
}
