package model

type ItemCreated struct {
	ItemID ItemID
	Name   string
}

func (e ItemCreated) Type() string { return "ItemCreated" }

type ItemUpdated struct {
	ItemID ItemID
}

func (e ItemUpdated) Type() string { return "ItemUpdated" }

type ItemDeleted struct {
	ItemID ItemID
}

func (e ItemDeleted) Type() string { return "ItemDeleted" }

type AttachmentOrphaned struct {
	ItemID ItemID
	Ref    string
}

func (e AttachmentOrphaned) Type() string { return "AttachmentOrphaned" }
