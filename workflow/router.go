package workflow

// Route picks the node for st. Missing or unknown stages start at profiling.
func Route(st State) Stage {
	if st.Stage.Valid() {
		return st.Stage
	}
	return StageProfiling
}
