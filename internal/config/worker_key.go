package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	FinishInterviewsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	FinishInterviewsQueue:  "finish_interviews_queue",
}
