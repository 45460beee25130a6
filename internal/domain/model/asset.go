// asset.go — каталог файлов и томов хранения.
// Asset и Volume принадлежат внешней CMS; Linkgate читает их read-only.
package model

import "time"

// VolumeKind — тип тома хранения.
type VolumeKind string

const (
	// VolumeLocal — локальная файловая система (base_path + folder + filename).
	VolumeLocal VolumeKind = "local"
	// VolumeRemote — удалённое object-хранилище с публичными URL.
	VolumeRemote VolumeKind = "remote"
)

// Volume — том хранения файлов.
type Volume struct {
	// ID — UUID тома
	ID string
	// Name — человекочитаемое имя тома
	Name string
	// Kind — тип тома (local или remote)
	Kind VolumeKind
	// BasePath — корневой путь на файловой системе (только local)
	BasePath string
	// RootURL — базовый URL хранилища (только remote, информационный)
	RootURL string
}

// Asset — запись каталога файлов.
type Asset struct {
	// ID — UUID файла
	ID string
	// Filename — оригинальное имя файла
	Filename string
	// Size — размер файла в байтах
	Size int64
	// ContentType — MIME-тип файла
	ContentType string
	// VolumeID — UUID тома, на котором хранится файл
	VolumeID string
	// FolderPath — путь папки файла относительно корня тома
	FolderPath string
	// PublicURL — публичный URL файла (только remote-тома; nil — отсутствует)
	PublicURL *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// AssetInfo — файл вместе с его томом: единица выдачи каталога
// и единица кэширования (дескриптор неизменяем между запросами).
type AssetInfo struct {
	Asset  Asset
	Volume Volume
}
